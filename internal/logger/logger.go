// Package logger runs the audit log service: it redirects the standard
// logger to a size-rotated file and archives logs past their retention.
package logger

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dioptratool/dioptra-web-sub000/internal/config"
)

const (
	rotateCheckInterval = 10 * time.Second
	retentionInterval   = 24 * time.Hour
)

type LoggerService struct {
	Config map[string]interface{}

	mu      sync.Mutex
	file    *os.File
	current string

	stopCh chan struct{}
	wg     sync.WaitGroup

	maxFileBytes  int64
	retentionDays int
	folder        string
}

// intOption reads an int out of the YAML-decoded service config, which hands
// numbers over as either int or float64.
func intOption(cfg map[string]interface{}, key string, fallback int) int {
	switch v := cfg[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}

func NewLoggerService(cfg map[string]interface{}) *LoggerService {
	folder, _ := cfg["folder_path"].(string)
	if folder == "" {
		folder = config.DefaultLogFolder
	}
	maxMB := intOption(cfg, "max_file_mb", config.DefaultLogMaxFileMB)
	return &LoggerService{
		Config:        cfg,
		stopCh:        make(chan struct{}),
		maxFileBytes:  int64(maxMB) << 20,
		retentionDays: intOption(cfg, "retention_days", config.DefaultLogRetentionDays),
		folder:        folder,
	}
}

func (l *LoggerService) Name() string {
	return "logger"
}

func (l *LoggerService) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.folder, 0755); err != nil {
		return err
	}
	if err := l.openNextFile(); err != nil {
		return err
	}
	log.Println("[LoggerService] Started, writing to", l.current)

	l.wg.Add(1)
	go l.maintain()
	return nil
}

func (l *LoggerService) Stop() error {
	close(l.stopCh)
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	log.Println("[LoggerService] Stopping")
	return l.file.Close()
}

// LogAudit records an audit line through the redirected standard logger.
func (l *LoggerService) LogAudit(msg string) {
	log.Printf("[AUDIT] %s", msg)
}

// openNextFile starts a fresh timestamped log file and points the standard
// logger at it. Callers hold l.mu.
func (l *LoggerService) openNextFile() error {
	name := filepath.Join(l.folder, fmt.Sprintf("dioptra_%s.log", time.Now().Format("20060102_150405")))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = file
	l.current = name
	log.SetOutput(file)
	return nil
}

func (l *LoggerService) maintain() {
	defer l.wg.Done()
	rotate := time.NewTicker(rotateCheckInterval)
	retention := time.NewTicker(retentionInterval)
	defer rotate.Stop()
	defer retention.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-rotate.C:
			l.rotateIfOverLimit()
		case <-retention.C:
			l.archiveExpiredLogs()
		}
	}
}

func (l *LoggerService) rotateIfOverLimit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil || l.maxFileBytes <= 0 {
		return
	}
	info, err := l.file.Stat()
	if err != nil || info.Size() < l.maxFileBytes {
		return
	}
	l.file.Close()
	if err := l.openNextFile(); err != nil {
		log.SetOutput(os.Stderr)
		log.Println("[LoggerService] Rotation failed:", err)
		return
	}
	log.Println("[LoggerService] Rotated log file to", l.current)
}

// archiveExpiredLogs moves log files older than the retention window into a
// dated zip and deletes the originals. The active file is never older than
// the window, so it is left alone.
func (l *LoggerService) archiveExpiredLogs() {
	if l.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -l.retentionDays)
	entries, err := os.ReadDir(l.folder)
	if err != nil {
		return
	}

	var expired []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".log" {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		expired = append(expired, e.Name())
	}
	if len(expired) == 0 {
		return
	}

	zipName := filepath.Join(l.folder, fmt.Sprintf("logs_%s.zip", time.Now().Format("20060102")))
	zipFile, err := os.Create(zipName)
	if err != nil {
		return
	}
	defer zipFile.Close()
	zw := zip.NewWriter(zipFile)
	defer zw.Close()

	for _, name := range expired {
		full := filepath.Join(l.folder, name)
		dst, err := zw.Create(name)
		if err != nil {
			continue
		}
		src, err := os.Open(full)
		if err != nil {
			continue
		}
		_, copyErr := io.Copy(dst, src)
		src.Close()
		if copyErr == nil {
			os.Remove(full)
		}
	}
}

// GlobalLogger is set by the app manager once the logger service is
// registered. Callers must nil-check it.
var GlobalLogger *LoggerService

func SetGlobalLogger(l *LoggerService) {
	GlobalLogger = l
}
