package features

// riskKeywords maps message substrings to risk weights. The keyword_risk
// feature takes the maximum weight over all matching substrings.
var riskKeywords = map[string]float64{
	"failed password":       0.95,
	"authentication failed": 0.95,
	"invalid user":          0.90,
	"sasl login":            0.88,
	"failed mfa":            0.97,
	"suspicious command":    0.98,
	"unauthorized":          0.93,
	"brute":                 0.96,
	"exploit":               0.99,
	"rootkit":               1.0,
	"failed":                0.65,
	"error":                 0.55,
	"warning":               0.45,
	"denied":                0.70,
	"rejected":              0.68,
	"blocked":               0.60,
	"sudo":                  0.55,
	"root":                  0.52,
	"admin":                 0.50,
	"disconnect":            0.40,
	"connect from unknown":  0.65,
	"accepted publickey":    0.25,
	"started session":       0.15,
	"container started":     0.20,
	"user login succeeded":  0.20,
}

// sourceRisk maps lowercased source identifiers to a base risk weight.
// Sources not in the table carry the default risk.
var sourceRisk = map[string]float64{
	"sshd":       0.50,
	"sudo":       0.60,
	"kernel":     0.55,
	"auditd":     0.55,
	"postfix":    0.45,
	"nginx":      0.40,
	"cron":       0.15,
	"systemd":    0.15,
	"dockerd":    0.20,
	"app-worker": 0.45,
}

// defaultSourceRisk is used for sources absent from the risk table.
const defaultSourceRisk = 0.30

// Signal token sets for the has_*_signal features.
var (
	failureTokens   = []string{"failed", "failure", "denied", "rejected"}
	privilegeTokens = []string{"sudo", "root", "admin", "privilege"}
	authTokens      = []string{"ssh", "publickey", "password", "login"}
)
