//go:build cgo

package main

const cgoProvider = true
