package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/confirmly/confirmation-engine/internal/policy"
	"github.com/confirmly/confirmation-engine/internal/validation"
)

type PolicyStore interface {
	Get(ctx context.Context, merchantID string) (*policy.Policy, error)
	Save(ctx context.Context, merchantID string, rules []policy.Rule) (*policy.Policy, error)
	Delete(ctx context.Context, merchantID string) error
}

// PoliciesHandler serves merchant policy CRUD and the preview endpoint.
type PoliciesHandler struct {
	policies PolicyStore
	validate *validatorv10.Validate
}

func NewPoliciesHandler(ps PolicyStore) *PoliciesHandler {
	return &PoliciesHandler{policies: ps, validate: validation.New()}
}

func (h *PoliciesHandler) Register(r gin.IRouter) {
	r.GET("/v1/merchants/:merchantId/policy", h.getPolicy)
	r.PUT("/v1/merchants/:merchantId/policy", h.savePolicy)
	r.DELETE("/v1/merchants/:merchantId/policy", h.deletePolicy)
	r.POST("/v1/merchants/:merchantId/policy/test", h.testPolicy)
}

func (h *PoliciesHandler) getPolicy(c *gin.Context) {
	pol, err := h.policies.Get(c.Request.Context(), c.Param("merchantId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "policy_lookup_failed"})
		return
	}
	if pol == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy_not_found"})
		return
	}
	c.JSON(http.StatusOK, pol)
}

// savePolicy replaces the merchant's rule set wholesale. Partial updates
// are not supported: rule order carries meaning and merging would scramble
// it.
func (h *PoliciesHandler) savePolicy(c *gin.Context) {
	var req validation.SavePolicyRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	rules := make([]policy.Rule, 0, len(req.Rules))
	for _, r := range req.Rules {
		rules = append(rules, policy.Rule{
			Key:      r.Key,
			Operator: r.Operator,
			Value:    r.Value,
			Effect:   policy.Effect(r.Effect),
		})
	}

	pol, err := h.policies.Save(c.Request.Context(), c.Param("merchantId"), rules)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "policy_save_failed"})
		return
	}
	c.JSON(http.StatusOK, pol)
}

func (h *PoliciesHandler) deletePolicy(c *gin.Context) {
	if err := h.policies.Delete(c.Request.Context(), c.Param("merchantId")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "policy_delete_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// testPolicy previews the stored policy against an ad-hoc order snapshot.
// The effect comes from the first matching rule; every matching rule is
// returned for diagnosis.
func (h *PoliciesHandler) testPolicy(c *gin.Context) {
	var req validation.TestPolicyRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	pol, err := h.policies.Get(c.Request.Context(), c.Param("merchantId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "policy_lookup_failed"})
		return
	}

	effect, matched := policy.Test(req.Order, pol)
	c.JSON(http.StatusOK, gin.H{
		"effect":       effect,
		"matchedRules": matched,
	})
}
