package mitre

// eventTechniqueMap maps Windows security event IDs to technique IDs.
var eventTechniqueMap = map[string]string{
	"4624": "T1078",     // Valid Accounts
	"4625": "T1110",     // Brute Force
	"4672": "T1078.002", // Domain Accounts
	"4720": "T1136",     // Create Account
	"4732": "T1098",     // Account Manipulation
	"4688": "T1059",     // Command and Scripting Interpreter
	"4698": "T1053.005", // Scheduled Task/Job
	"5140": "T1021.002", // SMB/Windows Admin Shares
	"7045": "T1543.003", // Create or Modify System Process: Windows Service
}

// keywordRule pairs a message/event-type substring with a technique ID.
type keywordRule struct {
	keyword   string
	technique string
}

// keywordRules are checked in order against the combined lowercase message
// and event type. Order matters for deduplication: the first technique match
// wins.
var keywordRules = []keywordRule{
	{"powershell", "T1059.001"},
	{"cmd.exe", "T1059.003"},
	{"wmic", "T1047"},
	{"mimikatz", "T1003"},
	{"credential", "T1003"},
	{"password", "T1003"},
	{"registry", "T1112"},
	{"scheduled task", "T1053"},
	{"service", "T1543"},
	{"remote desktop", "T1021.001"},
	{"ssh", "T1021.004"},
	{"lateral movement", "T1021"},
	{"privilege escalation", "T1068"},
	{"persistence", "T1546"},
}
