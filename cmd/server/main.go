// Command server runs the persona chat backend.
//
// @title                      Persona Chat API
// @version                    1.0
// @description                Characters, conversations and in-character AI chat.
// @BasePath                   /api
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import "github.com/tbourn/persona-chat-backend/cmd/server/commands"

func main() {
	commands.Execute()
}
