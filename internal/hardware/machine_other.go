//go:build !linux

package hardware

func machine() string { return "" }
