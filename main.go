package main

import "crossboot/internal/crossboot"

func main() {
	crossboot.Main()
}
