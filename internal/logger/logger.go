package logger

import "go.uber.org/zap"

var log *zap.SugaredLogger

func Init() {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	log = l.Sugar()
}

// InitDevelopment switches to the human-readable encoder for local runs.
func InitDevelopment() {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	log = l.Sugar()
}

func Info(msg string, kv ...interface{}) {
	ensure()
	log.Infow(msg, kv...)
}

func Warn(msg string, kv ...interface{}) {
	ensure()
	log.Warnw(msg, kv...)
}

func Error(msg string, kv ...interface{}) {
	ensure()
	log.Errorw(msg, kv...)
}

func ensure() {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
}
