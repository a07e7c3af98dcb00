package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation is the parent of every request rejection. Rejected
	// requests never touch storage.
	ErrValidation = errors.New("invalid transfer request")

	ErrMissingParameter    = fmt.Errorf("%w: missing parameter", ErrValidation)
	ErrMissingFtpParameter = fmt.Errorf("%w: missing ftp parameter", ErrValidation)
	ErrNoFiles             = fmt.Errorf("%w: no files to upload", ErrValidation)
)

// TransferRequest describes one batch. Form tags bind multipart uploads,
// JSON tags bind run requests.
type TransferRequest struct {
	SourceLocation      string `json:"sourceServer" form:"sourceServer"`
	SourcePath          string `json:"sourcePath" form:"sourcePath"`
	DestinationLocation string `json:"destinationServer" form:"destinationServer"`
	DestinationPath     string `json:"destinationPath" form:"destinationPath"`

	SourceFtpHost      string `json:"sourceFtpServerIp,omitempty" form:"sourceFtpServerIp"`
	SourceFtpPort      int    `json:"sourceFtpPort,omitempty" form:"sourceFtpPort"`
	DestinationFtpHost string `json:"destinationFtpServerIp,omitempty" form:"destinationFtpServerIp"`
	DestinationFtpPort int    `json:"destinationFtpPort,omitempty" form:"destinationFtpPort"`
}

// Mode reports the transfer mode the request selects.
func (r TransferRequest) Mode() TransferMode {
	if strings.TrimSpace(r.DestinationFtpHost) != "" {
		return ModeFTP
	}
	return ModeCopy
}

// Validate checks the request without touching any storage.
func (r TransferRequest) Validate() error {
	required := []struct {
		name, value string
	}{
		{"sourceServer", r.SourceLocation},
		{"sourcePath", r.SourcePath},
		{"destinationServer", r.DestinationLocation},
		{"destinationPath", r.DestinationPath},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s", ErrMissingParameter, f.name)
		}
	}

	if r.Mode() == ModeFTP && r.DestinationFtpPort <= 0 {
		return fmt.Errorf("%w: destinationFtpPort", ErrMissingFtpParameter)
	}
	if strings.TrimSpace(r.SourceFtpHost) != "" && r.SourceFtpPort <= 0 {
		return fmt.Errorf("%w: sourceFtpPort", ErrMissingFtpParameter)
	}
	if strings.TrimSpace(r.SourceFtpHost) == "" && r.SourceFtpPort != 0 {
		return fmt.Errorf("%w: sourceFtpServerIp", ErrMissingFtpParameter)
	}
	if strings.TrimSpace(r.DestinationFtpHost) == "" && r.DestinationFtpPort != 0 {
		return fmt.Errorf("%w: destinationFtpServerIp", ErrMissingFtpParameter)
	}
	return nil
}

// ValidateUpload checks a request for the FTP upload path, which always
// needs a destination FTP server.
func (r TransferRequest) ValidateUpload() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Mode() != ModeFTP {
		return fmt.Errorf("%w: destinationFtpServerIp", ErrMissingFtpParameter)
	}
	return nil
}
