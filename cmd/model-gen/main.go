package main

import "github.com/manojsingh/agent-skills/cmd/model-gen/cmd"

func main() {
	cmd.Execute()
}
