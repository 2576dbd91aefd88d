// Package version хранит сведения о сборке, заполняемые через -ldflags:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/pix-initiation/internal/version.version=1.2.0"
package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

const serviceName = "pix-initiation"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает хеш коммита.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}

// UserAgent — user-agent исходящих gRPC-вызовов.
func UserAgent() string {
	return serviceName + "/" + version
}

// Fields — поля для стартовой записи в лог.
func Fields() log.Fields {
	return log.Fields{
		"service": serviceName,
		"version": version,
		"commit":  commit,
		"date":    date,
	}
}
