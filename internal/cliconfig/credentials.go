package cliconfig

import (
	"encoding/json"
	"fmt"
	"os"
)

// CredentialsEnv is the environment variable the Google client libraries read
// for application default credentials.
const CredentialsEnv = "GOOGLE_APPLICATION_CREDENTIALS"

type credentialsDoc struct {
	Type      string `json:"type"`
	ProjectID string `json:"project_id"`
}

// ProjectFromCredentials reads the project_id of a service account key file.
func ProjectFromCredentials(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read credentials: %w", err)
	}
	var doc credentialsDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return "", fmt.Errorf("parse credentials: %w", err)
	}
	if doc.ProjectID == "" {
		return "", fmt.Errorf("credentials %s carry no project_id", path)
	}
	return doc.ProjectID, nil
}

// ResolveProject fills Project from the credentials file when it is unset.
// The explicit credentials file wins over GOOGLE_APPLICATION_CREDENTIALS.
func ResolveProject(cfg *Config) error {
	if cfg.Project != "" || cfg.DryRun {
		return nil
	}
	path := cfg.CredentialsFile
	if path == "" {
		path = os.Getenv(CredentialsEnv)
	}
	if path == "" {
		return nil
	}
	project, err := ProjectFromCredentials(path)
	if err != nil {
		return err
	}
	cfg.Project = project
	return nil
}
