package main

import "github.com/sunnyswag/RTCStartupDemo/cmd"

func main() {
	cmd.Execute()
}
