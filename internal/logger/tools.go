//go:build tools

package logger

import _ "golang.org/x/tools/cmd/stringer"
