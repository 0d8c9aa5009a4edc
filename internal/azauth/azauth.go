// Package azauth resolves Azure AD credentials shared by the Azure OpenAI and
// Azure AI Search clients.
package azauth

import (
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	ragerrors "ragkit/pkg/errors"
	"ragkit/pkg/logger"
)

const (
	// CognitiveServicesScope is the token scope of Azure OpenAI.
	CognitiveServicesScope = "https://cognitiveservices.azure.com/.default"
	// SearchScope is the token scope of Azure AI Search.
	SearchScope = "https://search.azure.com/.default"
)

var (
	once    sync.Once
	cred    azcore.TokenCredential
	credErr error
)

// DefaultCredential returns the process wide DefaultAzureCredential chain
// (environment, workload identity, managed identity, Azure CLI).
func DefaultCredential() (azcore.TokenCredential, error) {
	once.Do(func() {
		c, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			credErr = &ragerrors.AuthenticationError{Provider: "azure", Message: err.Error()}
			return
		}
		logger.Debug("using default azure credential chain")
		cred = c
	})
	return cred, credErr
}
