package protocol

// Credentials LOGIN / REGISTER 负载
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TextPayload MESSAGE 负载
// 客户端发送时 sender 可省略，服务端转发时总是由会话身份填充。
type TextPayload struct {
	Sender   string `json:"sender,omitempty"`
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
}

// FilePayload FILE 元数据，帧之后紧跟 FileSize 字节的原始数据
type FilePayload struct {
	Filename string `json:"filename"`
	FileSize int64  `json:"file_size"`
	Receiver string `json:"receiver,omitempty"`
	Sender   string `json:"sender,omitempty"`
}

// ContactListPayload CONTACT_LIST 负载，请求时为空
type ContactListPayload struct {
	Contacts []string `json:"contacts"`
}

// StatusPayload ERROR / SUCCESS 负载
type StatusPayload struct {
	Message string `json:"message"`
}
