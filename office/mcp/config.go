package mcp

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/viant/scy"
)

// Config controls the Office MCP server behaviour and authentication.
type Config struct {
	// Azure AD application (client) ID for Microsoft Graph.
	ClientID string `json:"clientID" envconfig:"CLIENT_ID"`
	// Tenant ID or "organizations"/"common".
	TenantID string `json:"tenantID" envconfig:"TENANT_ID" default:"organizations"`

	// SecretsBase is the AFS base URL where auth records are persisted per
	// account alias, e.g. mem://localhost/mcp-office or file:///var/lib/mcp-office.
	SecretsBase string `json:"secretsBase,omitempty" envconfig:"SECRETS_BASE" default:"mem://localhost/mcp-office"`

	// CallbackBaseURL is used to generate absolute URLs for OOB flows.
	// Example: http://localhost:7788
	CallbackBaseURL string `json:"callbackBaseURL,omitempty" envconfig:"CALLBACK_BASE_URL"`

	// If true, return tool results in the `data` field instead of `text`.
	UseData bool `json:"useData,omitempty" envconfig:"USE_DATA"`

	// NATSURL enables best-effort intent event publishing when set.
	NATSURL string `json:"natsURL,omitempty" envconfig:"NATS_URL"`

	// AzureRef optionally points to an Azure OAuth2 client config stored as a
	// scy resource, using EncodedResource syntax: "<URL>|<kmsKey>".
	// Examples:
	//  - file-based:    "~/.secret/azure.yaml|blowfish://default"
	//  - GCP secret:    "gcp://secretmanager/projects/myproj/secrets/azure-cred|blowfish://default"
	// The referenced content should unmarshal into github.com/viant/scy/cred.Azure.
	AzureRef scy.EncodedResource `json:"azureRef,omitempty" envconfig:"AZURE_REF"`
}

// ConfigFromEnv fills a Config from OFFICE_* environment variables.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("office", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
