package gattble

import "github.com/fako1024/gatt"

var (
	defaultBTClientOptions []gatt.Option
)
