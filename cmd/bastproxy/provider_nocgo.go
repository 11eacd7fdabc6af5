//go:build !cgo

package main

const cgoProvider = false
