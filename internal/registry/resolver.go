// Package registry resolves a module version to its immutable OCI
// digest. The verify stage pins the digest before any traffic moves so
// every node swaps in the same artifact.
package registry

import (
	"context"
	"fmt"

	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
)

type Resolver interface {
	ResolveDigest(ctx context.Context, module, version string) (string, error)
}

// OCIResolver resolves digests against a remote OCI registry.
type OCIResolver struct {
	Host     string
	Username string
	Token    string
}

func (r *OCIResolver) ResolveDigest(ctx context.Context, module, version string) (string, error) {
	repo, err := remote.NewRepository(fmt.Sprintf("%s/%s", r.Host, module))
	if err != nil {
		return "", fmt.Errorf("invalid repo: %w", err)
	}

	if r.Token != "" {
		repo.Client = &auth.Client{
			Credential: auth.StaticCredential(repo.Reference.Registry, auth.Credential{
				Username: r.Username,
				Password: r.Token,
			}),
			Cache: auth.NewCache(),
		}
	}

	desc, err := repo.Resolve(ctx, version)
	if err != nil {
		return "", fmt.Errorf("resolve %s:%s: %w", module, version, err)
	}
	return desc.Digest.String(), nil
}

// StaticResolver returns canned digests; tests and dev mode.
type StaticResolver struct {
	Digests map[string]string // "module:version" -> digest
	Err     error
}

func (r *StaticResolver) ResolveDigest(_ context.Context, module, version string) (string, error) {
	if r.Err != nil {
		return "", r.Err
	}
	if d, ok := r.Digests[module+":"+version]; ok {
		return d, nil
	}
	return "", fmt.Errorf("no digest for %s:%s", module, version)
}
