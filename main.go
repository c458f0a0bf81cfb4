package main

import "github.com/bpm-extensions/keycloak-identity/cmd"

func main() {
	cmd.Execute()
}
