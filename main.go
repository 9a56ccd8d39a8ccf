package main

import "github.com/derickschaefer/pricetrack/cmd"

func main() {
	cmd.Execute()
}
