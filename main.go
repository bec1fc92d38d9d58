package main

import "vargento/internal/app"

func main() {
	app.Main()
}
