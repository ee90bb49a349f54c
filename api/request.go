package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// decode reads a JSON body into v and validates its struct tags.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

// RunCommandRequest runs a command on one host.
type RunCommandRequest struct {
	HostID  string `json:"server_id" validate:"required"`
	Command string `json:"command" validate:"required,max=8192"`
	// Timeout overrides the execute timeout, in seconds.
	Timeout int `json:"timeout" validate:"omitempty,min=1,max=86400"`
}

// RunBatchRequest runs a command on every host of a group.
type RunBatchRequest struct {
	GroupID string `json:"group_id" validate:"required"`
	Command string `json:"command" validate:"required,max=8192"`
	Timeout int    `json:"timeout" validate:"omitempty,min=1,max=86400"`
}

// CreateJobRequest defines a scheduled job. At least one of HostID and
// GroupID is required; when both are set both must exist.
type CreateJobRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"omitempty,max=1024"`
	Schedule    string `json:"cron_expression" validate:"required,max=255"`
	Command     string `json:"command" validate:"required,max=8192"`
	HostID      string `json:"host_id" validate:"required_without=GroupID"`
	GroupID     string `json:"group_id" validate:"required_without=HostID"`
	Timeout     int    `json:"timeout" validate:"omitempty,min=1,max=86400"`
	RetryCount  *int   `json:"retry_count" validate:"omitempty,min=0,max=100"`
	Disabled    bool   `json:"disabled"`
}

// CreateGroupRequest creates a host group.
type CreateGroupRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"omitempty,max=1024"`
}

// CreateHostRequest registers a host. The password is sealed before it is
// stored.
type CreateHostRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Address  string `json:"ip" validate:"required,hostname_rfc1123|ip"`
	Port     int    `json:"port" validate:"omitempty,min=1,max=65535"`
	User     string `json:"ssh_user" validate:"omitempty,max=64"`
	Password string `json:"password" validate:"omitempty,max=1024"`
	GroupID  string `json:"group_id"`
}

// queryInt reads a non-negative integer query parameter, or fallback.
func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
