package middleware

import (
	"net/http"
	"strings"

	"trip-quota-service/domain"
	"trip-quota-service/request"
)

const (
	userIdHeader        = "x-user-id"
	userTierHeader      = "x-user-tier"
	clientSessionHeader = "x-client-session"
	forwardedForHeader  = "x-forwarded-for"
	realIpHeader        = "x-real-ip"

	anonymousIdentifier = "anonymous"
)

// Identity resolves the caller's identity and rate-limit identifier from
// trusted headers set by the upstream edge. All inputs are opaque strings;
// nothing is parsed beyond splitting the forwarded-for list.
//
// Identifier precedence: explicit client session, authenticated user id,
// first forwarded-for address, the "anonymous" sentinel.
func Identity() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			req := ctx.Request()

			userId := strings.TrimSpace(req.Header.Get(userIdHeader))
			if userId != "" {
				tier := domain.Tier(strings.TrimSpace(req.Header.Get(userTierHeader)))
				if tier == "" {
					tier = domain.TierFree
				}
				ctx.Authenticate(request.Identity{UserId: userId, Tier: tier})
			}

			clientIp := clientIp(req)
			ctx.SetClientAddress(clientIp)

			session := strings.TrimSpace(req.Header.Get(clientSessionHeader))
			switch {
			case session != "":
				ctx.SetRateIdentifier(session)
			case userId != "":
				ctx.SetRateIdentifier(userId)
			case clientIp != "":
				ctx.SetRateIdentifier(clientIp)
			default:
				ctx.SetRateIdentifier(anonymousIdentifier)
			}

			return next.Handle(ctx)
		})
	}
}

func clientIp(req *http.Request) string {
	forwarded := req.Header.Get(forwardedForHeader)
	if forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return strings.TrimSpace(req.Header.Get(realIpHeader))
}
