package main

import "github.com/pkamenev/toolgate/internal/cli"

func main() {
	cli.Execute()
}
