package middleware

import (
	"strings"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/one-chat/one-chat/common/ctxkey"
	"github.com/one-chat/one-chat/relay/access"
)

// AccessCodeHeader lets API clients present a premium code without a session.
const AccessCodeHeader = "X-Access-Code"

// Identity resolves who is calling. A valid premium code hash in the session
// (or a valid code in the X-Access-Code header or ?code= query) makes the
// hash the user key; otherwise the anonymous user_id is used.
// When issue is set, callers without a user_id get a new one.
func Identity(reg *access.Registry, issue bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		dirty := false

		userID, _ := session.Get(ctxkey.UserId).(string)
		if userID == "" && issue {
			userID = uuid.NewString()
			session.Set(ctxkey.UserId, userID)
			dirty = true
		}

		hash, _ := session.Get(ctxkey.PremiumCodeHash).(string)
		if !reg.IsPremium(hash) {
			hash = ""
			if code := presentedCode(c); code != "" {
				if h, ok := reg.Validate(code); ok {
					hash = h
					session.Set(ctxkey.PremiumCodeHash, h)
					dirty = true
				}
			}
		}

		if dirty {
			if err := session.Save(); err != nil {
				gmw.GetLogger(c).Warn("failed to save session", zap.Error(err))
			}
		}

		premium := hash != ""
		userKey := userID
		if premium {
			userKey = hash
		}

		c.Set(ctxkey.UserId, userID)
		c.Set(ctxkey.Premium, premium)
		c.Set(ctxkey.UserKey, userKey)
		if userKey != "" {
			gmw.SetLogger(c, gmw.GetLogger(c).With(zap.Bool("premium", premium)))
		}
		c.Next()
	}
}

func presentedCode(c *gin.Context) string {
	if code := strings.TrimSpace(c.GetHeader(AccessCodeHeader)); code != "" {
		return code
	}
	return strings.TrimSpace(c.Query("code"))
}

// UserKey returns the identity resolved by Identity, or "".
func UserKey(c *gin.Context) string { return c.GetString(ctxkey.UserKey) }

// IsPremium reports the tier resolved by Identity.
func IsPremium(c *gin.Context) bool { return c.GetBool(ctxkey.Premium) }
