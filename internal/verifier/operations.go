package verifier

import (
	"context"

	"certverify/internal/verifier/inspectors"
	"certverify/internal/verifier/models"
	"certverify/internal/verifier/steps"
	"certverify/internal/verifier/suite"
	"certverify/pkg/requestcontext"
)

// runOperation dispatches one entry of the process list. Operations run in
// sequence; each goes through the run's action wrapper.
func (v *Verifier) runOperation(ctx context.Context, r *run, s suite.Suite, op steps.Code) {
	switch op {
	case steps.CheckImagesIntegrity:
		v.checkImagesIntegrity(ctx, r)
	case steps.CheckRevokedStatus:
		v.checkRevokedStatus(ctx, r, s)
	case steps.CheckExpiresDate:
		v.checkExpiresDate(ctx, r)
	case steps.ControlVerificationMethod:
		v.controlVerificationMethod(ctx, r)
	default:
		v.logger.Error("verification logic not implemented", "operation", op)
	}
}

func (v *Verifier) checkImagesIntegrity(ctx context.Context, r *run) {
	_, _ = r.do(ctx, steps.CheckImagesIntegrity, func(ctx context.Context) (any, error) {
		if v.cfg.Hashlinks == nil {
			return nil, nil
		}
		if err := v.cfg.Hashlinks.VerifyHashlinks(ctx, v.cfg.Document); err != nil {
			v.logger.ErrorContext(ctx, "hashlink verification error", "error", err)
			return nil, models.WrapError(err, models.KindIntegrity, steps.CheckImagesIntegrity,
				"One or more embedded images could not be verified against their hashlink.")
		}
		return nil, nil
	})
}

// checkRevokedStatus checks the spent outputs of the anchoring transaction
// against the issuer's revocation key, then fetches the revocation list as
// untracked work inside the tracked step, so a fetch failure fails
// checkRevokedStatus.
func (v *Verifier) checkRevokedStatus(ctx context.Context, r *run, s suite.Suite) {
	spent := spentAddresses(s)
	bySpentOutput := v.cfg.RevocationKey != "" && len(spent) > 0

	listURL := v.cfg.Issuer.RevocationList
	byList := false
	switch {
	case listURL == "":
		v.logger.WarnContext(ctx, "no revocation list url was set on the issuer", "issuer", v.cfg.Issuer.ID)
	case v.cfg.RevocationLists == nil:
		v.logger.WarnContext(ctx, "revocation lookups are disabled", "revocation_list", listURL)
	default:
		byList = true
	}
	if !bySpentOutput && !byList {
		return
	}

	_, _ = r.do(ctx, steps.CheckRevokedStatus, func(ctx context.Context) (any, error) {
		if err := inspectors.EnsureNotRevokedBySpentOutput(spent, v.cfg.RevocationKey); err != nil {
			return nil, err
		}
		if !byList {
			return nil, nil
		}
		revoked, err := suite.Do(ctx, r.do, steps.Untracked, func(ctx context.Context) ([]string, error) {
			return v.cfg.RevocationLists.RevokedAssertions(ctx, listURL, v.cfg.DocumentID)
		})
		if err != nil {
			return nil, models.WrapError(err, models.KindTransport, steps.CheckRevokedStatus,
				"Unable to retrieve the revocation list of the issuer.")
		}
		return nil, inspectors.EnsureNotRevoked(revoked, v.cfg.DocumentID)
	})
}

func spentAddresses(s suite.Suite) []string {
	reader, ok := s.(suite.TransactionReader)
	if !ok {
		return nil
	}
	data, ok := reader.TransactionData()
	if !ok {
		return nil
	}
	return data.RevokedAddresses
}

func (v *Verifier) checkExpiresDate(ctx context.Context, r *run) {
	_, _ = r.do(ctx, steps.CheckExpiresDate, func(ctx context.Context) (any, error) {
		return nil, inspectors.EnsureNotExpired(v.cfg.Expires, requestcontext.Now(ctx))
	})
}

// controlVerificationMethod only runs when the issuer has a DID document.
func (v *Verifier) controlVerificationMethod(ctx context.Context, r *run) {
	_, _ = r.do(ctx, steps.ControlVerificationMethod, func(ctx context.Context) (any, error) {
		var method string
		if proof, ok := v.cfg.Document.FirstProof(); ok {
			method = proof.VerificationMethod
		}
		return nil, inspectors.ControlVerificationMethod(v.cfg.Issuer.DIDDocument, method)
	})
}
