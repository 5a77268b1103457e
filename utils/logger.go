package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

var (
	InfoLogger  = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime)
	DebugLogger = log.New(io.Discard, "DEBUG: ", log.Ldate|log.Ltime)
)

// InitLogger настраивает логгеры. При пустом dir пишем в stdout/stderr,
// иначе в файлы info.log, error.log и debug.log внутри dir.
func InitLogger(dir string, debug bool) error {
	if dir == "" {
		InfoLogger.SetOutput(os.Stdout)
		ErrorLogger.SetOutput(os.Stderr)
		if debug {
			DebugLogger.SetOutput(os.Stdout)
		} else {
			DebugLogger.SetOutput(io.Discard)
		}
		return nil
	}

	// Создаем директорию для логов, если она не существует
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	// Открываем файлы для логирования
	infoFile, err := openLogFile(dir, "info.log")
	if err != nil {
		return err
	}
	errorFile, err := openLogFile(dir, "error.log")
	if err != nil {
		return err
	}

	InfoLogger.SetOutput(infoFile)
	ErrorLogger.SetOutput(io.MultiWriter(errorFile, os.Stderr))

	if debug {
		debugFile, err := openLogFile(dir, "debug.log")
		if err != nil {
			return err
		}
		DebugLogger.SetOutput(debugFile)
	} else {
		DebugLogger.SetOutput(io.Discard)
	}

	return nil
}

func openLogFile(dir, name string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return f, nil
}

// LogInfo логирует информационное сообщение
func LogInfo(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	InfoLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogError логирует сообщение об ошибке
func LogError(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	ErrorLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogDebug логирует отладочное сообщение
func LogDebug(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	DebugLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogOperation логирует операцию с метриками
func LogOperation(operation string, startTime time.Time, err error) {
	duration := time.Since(startTime)
	if err != nil {
		LogError("Operation %s failed after %v: %v", operation, duration, err)
	} else {
		LogInfo("Operation %s completed in %v", operation, duration)
	}
}

// NewStdLogger возвращает *log.Logger для библиотек, которым нужен стандартный логгер
func NewStdLogger() *log.Logger {
	return log.New(InfoLogger.Writer(), "", log.LstdFlags)
}
