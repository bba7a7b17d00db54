package protocol

// 常用信封的构造函数，负载均为固定结构，编码不会失败

func mustEncode(t MessageType, data any) []byte {
	frame, err := Encode(t, data)
	if err != nil {
		panic(err)
	}
	return frame
}

// NewLogin 登录请求
func NewLogin(username, password string) []byte {
	return mustEncode(MsgLogin, Credentials{Username: username, Password: password})
}

// NewRegister 注册请求
func NewRegister(username, password string) []byte {
	return mustEncode(MsgRegister, Credentials{Username: username, Password: password})
}

// NewText 文本消息
func NewText(sender, receiver, content string) []byte {
	return mustEncode(MsgMessage, TextPayload{Sender: sender, Receiver: receiver, Content: content})
}

// NewContactListRequest 联系人列表请求
func NewContactListRequest() []byte {
	return mustEncode(MsgContactList, struct{}{})
}

// NewContactList 联系人列表响应，contacts 为 nil 时编码为空数组
func NewContactList(contacts []string) []byte {
	if contacts == nil {
		contacts = []string{}
	}
	return mustEncode(MsgContactList, ContactListPayload{Contacts: contacts})
}

// NewError 错误响应
func NewError(message string) []byte {
	return mustEncode(MsgError, StatusPayload{Message: message})
}

// NewSuccess 成功响应
func NewSuccess(message string) []byte {
	return mustEncode(MsgSuccess, StatusPayload{Message: message})
}

// NewFileForward 服务端转发给接收方的文件（元数据 + 原始字节）
func NewFileForward(sender, receiver, filename string, data []byte) ([]byte, error) {
	return EncodeFilePayload(FilePayload{Filename: filename, Receiver: receiver, Sender: sender}, data)
}
