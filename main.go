package main

import "github.com/1asingh/InferPy/cmd"

func main() {
	cmd.Execute()
}
