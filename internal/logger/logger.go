package logger

import (
	"io"
	"log"
	"os"
)

var (
	InfoLogger  *log.Logger
	ErrorLogger *log.Logger
	logFile     *os.File
)

// Init opens (or creates) the log file and wires the package loggers to
// write to both the file and stderr.  Both daemons are interactive, so log
// output stays visible on the console.
func Init(logFilePath string) error {
	var err error
	logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}

	out := io.MultiWriter(logFile, os.Stderr)
	InfoLogger = log.New(out, "INFO: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(out, "ERROR: ", log.Ldate|log.Ltime)
	return nil
}

// Cleanup closes the log file when the application is done with it.
func Cleanup() {
	if logFile != nil {
		logFile.Close()
	}
}

// Info logs an informational message.
func Info(v ...interface{}) {
	if InfoLogger != nil {
		InfoLogger.Println(v...)
	} else {
		log.Println(v...)
	}
}

// Infof logs a formatted informational message.
func Infof(format string, v ...interface{}) {
	if InfoLogger != nil {
		InfoLogger.Printf(format, v...)
	} else {
		log.Printf(format, v...)
	}
}

// Error logs an error message.
func Error(v ...interface{}) {
	if ErrorLogger != nil {
		ErrorLogger.Println(v...)
	} else {
		log.Println(v...)
	}
}

// Errorf logs a formatted error message.
func Errorf(format string, v ...interface{}) {
	if ErrorLogger != nil {
		ErrorLogger.Printf(format, v...)
	} else {
		log.Printf(format, v...)
	}
}
