package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/marketkit/pkg/jwt"
	"github.com/dmitrymomot/marketkit/pkg/logger"
)

// tokenKind is the tagged variant of a landing-page token, decided once at
// the entry point of ResolveLayout.
type tokenKind int

const (
	tokenTest tokenKind = iota
	tokenMarketplace
	tokenSignedAgent
)

// classifyToken discriminates a token by shape. Anything with exactly two
// dots is a signed agent token; otherwise the fixed test literal selects the
// canned layout and everything else is an opaque marketplace token.
func (s *service) classifyToken(token string) tokenKind {
	if strings.Count(token, ".") == 2 {
		return tokenSignedAgent
	}
	if token == s.testToken {
		return tokenTest
	}
	return tokenMarketplace
}

// agentClaims are the claims a self-host agent stamps into the signed token
// it hands to the subscriber's browser.
type agentClaims struct {
	jwt.StandardClaims

	UID     string `json:"uid,omitempty"`  // caller identity the token was issued to
	Product string `json:"prod,omitempty"` // product the agent serves
	URL     string `json:"url,omitempty"`  // agent base URL
}

// agentIDHeader is the unverified JWT header field naming the issuing agent.
const agentIDHeader = "aid"

func (s *service) ResolveLayout(ctx context.Context, token, callerIdentity string) (*Layout, error) {
	switch s.classifyToken(token) {
	case tokenTest:
		return s.testLayout(ctx)
	case tokenSignedAgent:
		return s.agentLayout(ctx, token, callerIdentity)
	default:
		return s.marketplaceLayout(ctx, token)
	}
}

// testLayout is the canned layout behind the fixed test token. It exists for
// local and offline verification of the landing page only.
func (s *service) testLayout(ctx context.Context) (*Layout, error) {
	params, err := s.lookups.Offers.Parameters(ctx, "test1")
	if err != nil {
		return nil, err
	}
	return &Layout{
		SubscriptionID:   uuid.New(),
		SubscriptionName: "mysub",
		Offer:            OfferLayout{Name: "test1", DisplayName: "test 1"},
		Plans:            []PlanLayout{{Name: "test", DisplayName: "Test Plan"}},
		HostTypes:        []HostType{HostTypeSaaS},
		Parameters:       params,
	}, nil
}

// marketplaceLayout resolves an opaque marketplace token through the
// fulfillment gateway and builds the layout from the purchased offer and plan.
func (s *service) marketplaceLayout(ctx context.Context, token string) (*Layout, error) {
	resolved, err := s.gateway.ResolveToken(ctx, token)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	offer, err := s.lookups.Offers.ByName(ctx, resolved.OfferName)
	if err != nil {
		return nil, err
	}
	plan, err := s.lookups.Plans.ByName(ctx, resolved.OfferName, resolved.PlanName)
	if err != nil {
		return nil, err
	}
	params, err := s.lookups.Offers.Parameters(ctx, resolved.OfferName)
	if err != nil {
		return nil, err
	}

	// An offer without a linked product can only be hosted as SaaS.
	hostTypes := []HostType{HostTypeSaaS}
	product, err := s.lookups.Products.ByOfferID(ctx, offer.ID)
	switch {
	case err == nil:
		hostTypes = hostTypesForTag(product.HostType)
	case errors.Is(err, ErrProductNotFound):
	default:
		return nil, err
	}

	s.log.InfoContext(ctx, "resolved marketplace token",
		logger.SubscriptionID(resolved.ID), logger.OfferName(offer.Name), logger.PlanName(plan.Name))

	return &Layout{
		SubscriptionID:   resolved.ID,
		SubscriptionName: resolved.Name,
		Offer:            OfferLayout{Name: offer.Name, DisplayName: offer.Name},
		Plans:            []PlanLayout{{Name: plan.Name, DisplayName: plan.Name}},
		HostTypes:        hostTypes,
		Parameters:       params,
	}, nil
}

// agentLayout verifies a signed agent token and builds the layout from the
// agent's product and its deployments. The layout gets a fresh subscription
// id because no subscription exists yet at this point.
func (s *service) agentLayout(ctx context.Context, token, callerIdentity string) (*Layout, error) {
	// The agent id rides in the unverified header; it only selects which
	// signing secret to verify against.
	header, err := jwt.UnverifiedHeader(token)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	agentID, err := uuid.Parse(header[agentIDHeader])
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, fmt.Errorf("malformed %s header: %w", agentIDHeader, err))
	}

	agent, err := s.lookups.Agents.ByID(ctx, agentID)
	if err != nil {
		return nil, err
	}

	verifier, err := jwt.NewFromString(agent.Key)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	var claims agentClaims
	if err := verifier.Parse(token, &claims); err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	// Issuer is pinned to the agent the key belongs to; audience is not
	// validated for agent tokens.
	if claims.Issuer != agentID.String() {
		return nil, errors.Join(ErrInvalidToken, errors.New("issuer does not match the signing agent"))
	}
	if claims.UID != "" && !identityMatches(claims.UID, callerIdentity) {
		return nil, errors.Join(ErrInvalidToken, errors.New("uid claim does not match the caller identity"))
	}
	if claims.Product == "" {
		return nil, errors.Join(ErrInvalidToken, errors.New("prod claim is required"))
	}
	if claims.URL == "" {
		return nil, errors.Join(ErrInvalidToken, errors.New("url claim is required"))
	}

	product, err := s.lookups.Products.ByName(ctx, claims.Product)
	if err != nil {
		return nil, err
	}
	deployments, err := s.lookups.Products.Deployments(ctx, claims.Product)
	if err != nil {
		return nil, err
	}

	plans := make([]PlanLayout, len(deployments))
	for i, dep := range deployments {
		plans[i] = PlanLayout{Name: dep.Name, DisplayName: dep.Name}
	}

	s.log.InfoContext(ctx, "resolved agent token",
		logger.AgentID(agentID), slog.String("product", product.Name))

	return &Layout{
		SubscriptionID: uuid.New(),
		Offer:          OfferLayout{Name: product.Name, DisplayName: product.Name},
		Plans:          plans,
		HostTypes:      hostTypesForTag(product.HostType),
		AgentURL:       claims.URL,
	}, nil
}

// hostTypesForTag maps a product's host-type tag to the host types offered on
// the landing page. Unrecognized tags yield no host types.
func hostTypesForTag(tag string) []HostType {
	switch {
	case strings.EqualFold(tag, "SaaS"):
		return []HostType{HostTypeSaaS}
	case strings.EqualFold(tag, "BYOC"):
		return []HostType{HostTypeSelfhost}
	case strings.EqualFold(tag, "Both"):
		return []HostType{HostTypeSelfhost, HostTypeSaaS}
	default:
		return nil
	}
}
