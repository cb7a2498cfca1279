package iotmodels

// ResponseStructure is the uniform envelope for every API reply.
type ResponseStructure struct {
	Success      bool        `json:"success"`
	ErrorMessage string      `json:"errorMessage"`
	Code         int         `json:"code"`
	Data         interface{} `json:"data"`
}

// OK builds a success envelope.
func OK(code int, data interface{}) ResponseStructure {
	return ResponseStructure{Success: true, Code: code, Data: data}
}

// Error builds a failure envelope.
func Error(code int, message string) ResponseStructure {
	return ResponseStructure{Success: false, ErrorMessage: message, Code: code}
}
