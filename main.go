package main

import "github.com/launix-de/jjsgo/cmd/jjsc"

func main() {
	jjsc.Main()
}
