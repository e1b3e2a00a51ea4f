package i18n

var ptBRMessages = map[Code]string{
	CodeUnknown:         "algo deu errado",
	CodeInvalidArgument: "requisição inválida",
	CodeRoomNotFound:    "a sala não existe",
	CodeRoomEmpty:       "a sala está vazia",
	CodeRoomFull:        "a sala está cheia",
}
