package main

import "github.com/andresmejia3/feelcam/cmd"

func main() {
	cmd.Execute()
}
