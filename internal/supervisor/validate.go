package supervisor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/firefly-engineering/modhost/internal/config"
	"github.com/firefly-engineering/modhost/internal/route"
)

// Validator decides whether a descriptor may be installed. A non-nil
// error is a hard stop: nothing has been touched yet.
type Validator interface {
	Validate(ctx context.Context, desc config.Descriptor) error
}

// Image reference grammar: [registry[:port]/]path[:tag][@sha256:digest]
var (
	imageDomain    = `(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]*[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]*[a-zA-Z0-9])?)*(?::[0-9]+)?/)?`
	imageComponent = `[a-z0-9]+(?:(?:[._]|__|-+)[a-z0-9]+)*`
	imageRefRegex  = regexp.MustCompile(`^` + imageDomain +
		imageComponent + `(?:/` + imageComponent + `)*` +
		`(?::[A-Za-z0-9_][A-Za-z0-9_.-]{0,127})?` +
		`(?:@sha256:[a-f0-9]{64})?$`)
)

// ValidateImage checks that ref is a well-formed image reference.
func ValidateImage(ref string) error {
	if ref == "" {
		return fmt.Errorf("image is required")
	}
	if len(ref) > 255 || !imageRefRegex.MatchString(ref) {
		return fmt.Errorf("invalid image reference %q", ref)
	}
	return nil
}

// DescriptorValidator checks the shape of a descriptor: id, image, ports,
// route port, capabilities and environment keys.
type DescriptorValidator struct{}

// Validate implements Validator.
func (DescriptorValidator) Validate(ctx context.Context, desc config.Descriptor) error {
	if err := config.ValidateModuleID(desc.ID); err != nil {
		return err
	}
	if err := ValidateImage(desc.Image); err != nil {
		return err
	}
	if _, err := desc.ProxiedPort(); err != nil {
		return err
	}
	if _, err := capabilities(desc); err != nil {
		return err
	}
	for k := range desc.Env {
		if k == "" || strings.ContainsAny(k, "= \t\n") {
			return fmt.Errorf("invalid environment variable name %q", k)
		}
	}
	return nil
}

// capabilities parses the descriptor's declared route capabilities.
func capabilities(desc config.Descriptor) ([]route.Capability, error) {
	caps := make([]route.Capability, 0, len(desc.Capabilities))
	for _, raw := range desc.Capabilities {
		c, err := route.ParseCapability(raw)
		if err != nil {
			return nil, err
		}
		caps = append(caps, c)
	}
	return caps, nil
}

var _ Validator = DescriptorValidator{}
