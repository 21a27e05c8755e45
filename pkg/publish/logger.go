package publish

import (
	"fmt"
	"github.com/rs/zerolog"
	"strings"
)

// ZerologAdapter lets zerolog stand in wherever a Logger is expected.
type ZerologAdapter struct {
	Logger zerolog.Logger
	Level  zerolog.Level
}

func (a ZerologAdapter) Println(v ...interface{}) {
	a.Logger.WithLevel(a.Level).Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (a ZerologAdapter) Printf(format string, v ...interface{}) {
	a.Logger.WithLevel(a.Level).Msg(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}
