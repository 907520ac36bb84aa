package main

import "github.com/shouni/code-doc-reducer-go/cmd"

func main() {
	cmd.Execute()
}
