//go:build !fvrelease

package utils

// AssertionsEnabled is true unless built with the fvrelease tag
const AssertionsEnabled = true
