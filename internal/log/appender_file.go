package log

import "gopkg.in/natefinch/lumberjack.v2"

// FileAppenderOpt configures a rotating log file. Zero values fall back to
// lumberjack's defaults (100 MB, keep everything).
type FileAppenderOpt struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`       // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // rotated files kept
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`         // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// AddFileAppender appends a rotating file owned by m.
func (m *MultiWriter) AddFileAppender(options FileAppenderOpt) *MultiWriter {
	return m.AddOwned(&lumberjack.Logger{
		Filename:   options.Filename,
		MaxSize:    options.MaxSize,
		MaxBackups: options.MaxBackups,
		MaxAge:     options.MaxAge,
		Compress:   options.Compress,
	})
}
