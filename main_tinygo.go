//go:build tinygo

package main

import (
	"chibi/app"
	"chibi/hal"
)

func main() {
	app.Run(hal.New(), app.Config{})
}
