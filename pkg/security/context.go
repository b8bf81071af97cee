package security

import (
	"context"
	"errors"
	"fmt"

	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/google/uuid"
)

// AccessGate is the read-access check consumed by graph construction and
// retraction resolution.
type AccessGate interface {
	HasReadAccess(fact *model.Fact) bool
}

// BoundFactsResolver returns the Facts bound to an Object.
type BoundFactsResolver func(ctx context.Context, objectID uuid.UUID) ([]*model.Fact, error)

// SecurityContext evaluates permissions for one viewer.
type SecurityContext struct {
	controller AccessController
	subject    uuid.UUID
	boundFacts BoundFactsResolver
}

// NewSecurityContext binds controller to the viewer identified by subject.
// boundFacts may be nil if Object permission checks are not needed.
func NewSecurityContext(controller AccessController, subject uuid.UUID, boundFacts BoundFactsResolver) *SecurityContext {
	return &SecurityContext{
		controller: controller,
		subject:    subject,
		boundFacts: boundFacts,
	}
}

// SubjectID returns the viewer's identity.
func (sc *SecurityContext) SubjectID() uuid.UUID {
	return sc.subject
}

// CheckPermission verifies that the viewer holds fn in any organization.
func (sc *SecurityContext) CheckPermission(fn string) error {
	if sc.controller == nil {
		return ErrAuthenticationFailed
	}
	ok, err := sc.controller.HasPermission(sc.subject, fn)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: missing permission %s", ErrAccessDenied, fn)
	}
	return nil
}

// CheckOrganizationPermission verifies that the viewer holds fn for org.
func (sc *SecurityContext) CheckOrganizationPermission(fn string, org uuid.UUID) error {
	if sc.controller == nil {
		return ErrAuthenticationFailed
	}
	ok, err := sc.controller.HasOrganizationPermission(sc.subject, fn, org)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: missing permission %s for organization %s", ErrAccessDenied, fn, org)
	}
	return nil
}

// CheckReadPermission verifies that the viewer may read fact.
func (sc *SecurityContext) CheckReadPermission(fact *model.Fact) error {
	if fact == nil {
		return fmt.Errorf("%w: no access to fact", ErrAccessDenied)
	}

	if !fact.AccessMode.Valid() {
		return fmt.Errorf("%w: fact %s has access mode %s", model.ErrDataIntegrity, fact.ID, fact.AccessMode)
	}

	// Listed subjects always see the Fact, whatever its access mode.
	if fact.InACL(sc.subject) {
		return nil
	}

	switch fact.AccessMode {
	case model.AccessModePublic:
		return sc.CheckPermission(FunctionViewFact)
	case model.AccessModeExplicit:
		return fmt.Errorf("%w: no access to fact %s", ErrAccessDenied, fact.ID)
	}

	// RoleBased and not in ACL.
	return sc.CheckOrganizationPermission(FunctionViewFact, fact.OrganizationID)
}

// HasReadAccess is CheckReadPermission collapsed to a boolean. Any failure,
// including an unknown viewer, counts as no access.
func (sc *SecurityContext) HasReadAccess(fact *model.Fact) bool {
	return sc.CheckReadPermission(fact) == nil
}

// CheckObjectReadPermission verifies that the viewer may read object. The
// viewer needs read access to at least one Fact bound to the Object.
func (sc *SecurityContext) CheckObjectReadPermission(ctx context.Context, object *model.Object) error {
	// Same answer for a missing Object and an inaccessible one.
	if object == nil || sc.boundFacts == nil {
		return fmt.Errorf("%w: no access to object", ErrAccessDenied)
	}

	facts, err := sc.boundFacts(ctx, object.ID)
	if err != nil {
		return err
	}
	for _, f := range facts {
		if sc.HasReadAccess(f) {
			return nil
		}
	}
	return fmt.Errorf("%w: no access to object", ErrAccessDenied)
}

// HasObjectReadAccess is CheckObjectReadPermission collapsed to a boolean.
func (sc *SecurityContext) HasObjectReadAccess(ctx context.Context, object *model.Object) bool {
	return sc.CheckObjectReadPermission(ctx, object) == nil
}

// IsDenied reports whether err is an access or authentication failure.
func IsDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrAuthenticationFailed)
}
