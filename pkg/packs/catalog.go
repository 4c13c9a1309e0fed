package packs

const catalogVersion = "v2026-Q1-r3"

var catalog = []Pack{
	{
		PackID:       "ca-on-phipa",
		Name:         "Ontario PHIPA Healthcare Pack",
		Jurisdiction: "Canada — Ontario",
		Version:      catalogVersion,
		Tier:         "free",
		Frameworks:   []string{"PHIPA", "PIPEDA", "NIST AI RMF"},
		Checks: []Check{
			{CheckID: "phipa-001", Name: "Consent Verification", Severity: "critical", Description: "Verify patient consent for AI-assisted decision per PHIPA s.18"},
			{CheckID: "phipa-002", Name: "Data Residency", Severity: "critical", Description: "Verify data remains within Canadian jurisdiction per PHIPA s.10"},
			{CheckID: "phipa-003", Name: "Minimum Necessary", Severity: "high", Description: "Ensure only minimum necessary PHI accessed per PHIPA s.30"},
			{CheckID: "phipa-004", Name: "Custodian Accountability", Severity: "critical", Description: "Verify health information custodian accountability per PHIPA s.11"},
			{CheckID: "phipa-005", Name: "Disclosure Limits", Severity: "high", Description: "Validate disclosure limitations per PHIPA s.37-38"},
			{CheckID: "phipa-006", Name: "Access Controls", Severity: "high", Description: "Verify appropriate access controls per PHIPA s.13"},
			{CheckID: "phipa-007", Name: "Accuracy Requirements", Severity: "medium", Description: "Check information accuracy standards per PHIPA s.14"},
			{CheckID: "phipa-008", Name: "Retention Limits", Severity: "medium", Description: "Validate data retention compliance per PHIPA s.15"},
			{CheckID: "phipa-009", Name: "Third Party Agreements", Severity: "high", Description: "Verify information agent agreements per PHIPA s.17"},
			{CheckID: "phipa-010", Name: "Breach Notification", Severity: "critical", Description: "Check privacy breach handling per PHIPA s.12.1"},
			{CheckID: "phipa-011", Name: "Patient Access Rights", Severity: "medium", Description: "Validate patient access provisions per PHIPA s.52"},
			{CheckID: "phipa-012", Name: "Correction Rights", Severity: "medium", Description: "Ensure correction process compliance per PHIPA s.55"},
			{CheckID: "phipa-013", Name: "Circle of Care", Severity: "high", Description: "Verify circle of care provisions per PHIPA s.20"},
			{CheckID: "phipa-014", Name: "Administrative Safeguards", Severity: "high", Description: "Check administrative safeguards per PHIPA Regulation 329/04"},
			{CheckID: "phipa-015", Name: "Technical Safeguards", Severity: "critical", Description: "Verify technical safeguards per PHIPA Regulation 329/04"},
		},
	},
	{
		PackID:       "us-fed-hipaa",
		Name:         "US Federal HIPAA Compliance Pack",
		Jurisdiction: "United States — Federal",
		Version:      catalogVersion,
		Tier:         "free",
		Frameworks:   []string{"HIPAA", "HITECH", "NIST AI RMF"},
		Checks: []Check{
			{CheckID: "hipaa-001", Name: "Minimum Necessary Standard", Severity: "critical", Description: "Ensure minimum necessary PHI use per 45 CFR 164.502(b)"},
			{CheckID: "hipaa-002", Name: "Business Associate Agreement", Severity: "critical", Description: "Verify BAA compliance per 45 CFR 164.502(e)"},
			{CheckID: "hipaa-003", Name: "Authorization Requirements", Severity: "critical", Description: "Check authorization validity per 45 CFR 164.508"},
			{CheckID: "hipaa-004", Name: "Access Controls", Severity: "critical", Description: "Verify access control standards per 45 CFR 164.312(a)"},
			{CheckID: "hipaa-005", Name: "Audit Controls", Severity: "high", Description: "Check audit control implementation per 45 CFR 164.312(b)"},
			{CheckID: "hipaa-006", Name: "Integrity Controls", Severity: "high", Description: "Verify data integrity per 45 CFR 164.312(c)"},
			{CheckID: "hipaa-007", Name: "Transmission Security", Severity: "critical", Description: "Check transmission security per 45 CFR 164.312(e)"},
			{CheckID: "hipaa-008", Name: "Encryption Standards", Severity: "high", Description: "Verify encryption implementation per 45 CFR 164.312(a)(2)(iv)"},
			{CheckID: "hipaa-009", Name: "De-identification Standards", Severity: "high", Description: "Check de-identification methods per 45 CFR 164.514"},
			{CheckID: "hipaa-010", Name: "Breach Notification", Severity: "critical", Description: "Verify breach notification per 45 CFR 164.400"},
			{CheckID: "hipaa-011", Name: "Individual Rights", Severity: "high", Description: "Ensure individual access rights per 45 CFR 164.524"},
			{CheckID: "hipaa-012", Name: "Amendment Rights", Severity: "medium", Description: "Check amendment process per 45 CFR 164.526"},
			{CheckID: "hipaa-013", Name: "Accounting Disclosures", Severity: "medium", Description: "Verify disclosure accounting per 45 CFR 164.528"},
			{CheckID: "hipaa-014", Name: "Administrative Safeguards", Severity: "high", Description: "Check administrative safeguards per 45 CFR 164.308"},
			{CheckID: "hipaa-015", Name: "Physical Safeguards", Severity: "high", Description: "Verify physical safeguards per 45 CFR 164.310"},
			{CheckID: "hipaa-016", Name: "Workforce Training", Severity: "medium", Description: "Check workforce training per 45 CFR 164.308(a)(5)"},
			{CheckID: "hipaa-017", Name: "Contingency Plan", Severity: "high", Description: "Verify contingency planning per 45 CFR 164.308(a)(7)"},
			{CheckID: "hipaa-018", Name: "Risk Assessment", Severity: "high", Description: "Check risk assessment per 45 CFR 164.308(a)(1)"},
		},
	},
	{
		PackID:       "ca-fed-pipeda",
		Name:         "Canada Federal PIPEDA Pack",
		Jurisdiction: "Canada — Federal",
		Version:      catalogVersion,
		Tier:         "free",
		Frameworks:   []string{"PIPEDA", "NIST AI RMF"},
		Checks: []Check{
			{CheckID: "pipeda-001", Name: "Consent Requirements", Severity: "critical", Description: "Verify meaningful consent per PIPEDA Principle 3"},
			{CheckID: "pipeda-002", Name: "Purpose Limitation", Severity: "high", Description: "Check purpose specification per PIPEDA Principle 2"},
			{CheckID: "pipeda-003", Name: "Collection Limitation", Severity: "high", Description: "Verify collection limits per PIPEDA Principle 4"},
			{CheckID: "pipeda-004", Name: "Use Limitation", Severity: "high", Description: "Check use restrictions per PIPEDA Principle 5"},
			{CheckID: "pipeda-005", Name: "Disclosure Limitation", Severity: "high", Description: "Verify disclosure limits per PIPEDA Principle 6"},
			{CheckID: "pipeda-006", Name: "Accuracy Requirements", Severity: "medium", Description: "Check accuracy standards per PIPEDA Principle 6"},
			{CheckID: "pipeda-007", Name: "Safeguards", Severity: "critical", Description: "Verify security safeguards per PIPEDA Principle 7"},
			{CheckID: "pipeda-008", Name: "Openness", Severity: "medium", Description: "Check transparency requirements per PIPEDA Principle 8"},
			{CheckID: "pipeda-009", Name: "Individual Access", Severity: "high", Description: "Verify access rights per PIPEDA Principle 9"},
			{CheckID: "pipeda-010", Name: "Challenging Compliance", Severity: "medium", Description: "Check complaint mechanisms per PIPEDA Principle 10"},
			{CheckID: "pipeda-011", Name: "Cross-Border Transfers", Severity: "high", Description: "Verify transfer protections per PIPEDA s.4.1.3"},
			{CheckID: "pipeda-012", Name: "Breach Notification", Severity: "critical", Description: "Check breach reporting per PIPEDA s.10.1"},
		},
	},
	{
		PackID:       "us-fed-fda-aiml",
		Name:         "US FDA AI/ML Medical Device Pack",
		Jurisdiction: "United States — FDA",
		Version:      catalogVersion,
		Tier:         "pro",
		Frameworks:   []string{"FDA AI/ML Guidance", "ISO 14155", "ISO 13485"},
		Checks: []Check{
			{CheckID: "fda-001", Name: "Software as Medical Device", Severity: "critical", Description: "Verify SaMD classification per FDA Digital Health Guidelines"},
			{CheckID: "fda-002", Name: "Clinical Validation", Severity: "critical", Description: "Check clinical validation per FDA AI/ML Guidance 2021"},
			{CheckID: "fda-003", Name: "Algorithm Change Control", Severity: "high", Description: "Verify change control per FDA PCCP Framework"},
			{CheckID: "fda-004", Name: "Real-World Monitoring", Severity: "high", Description: "Check RWM plan per FDA AI/ML Action Plan"},
			{CheckID: "fda-005", Name: "Bias Assessment", Severity: "critical", Description: "Verify bias evaluation per FDA AI Bias Guidance"},
			{CheckID: "fda-006", Name: "Explainability", Severity: "high", Description: "Check AI explainability per FDA Interpretability Guidance"},
			{CheckID: "fda-007", Name: "Training Data Quality", Severity: "critical", Description: "Verify training data per FDA ML Data Guidelines"},
			{CheckID: "fda-008", Name: "Performance Monitoring", Severity: "high", Description: "Check performance tracking per FDA PCCP"},
			{CheckID: "fda-009", Name: "Risk Management", Severity: "critical", Description: "Verify risk controls per ISO 14971 and FDA"},
			{CheckID: "fda-010", Name: "Human Factors", Severity: "high", Description: "Check usability per FDA Human Factors Guidance"},
			{CheckID: "fda-011", Name: "Cybersecurity", Severity: "critical", Description: "Verify cybersecurity per FDA Cybersecurity Guidelines"},
			{CheckID: "fda-012", Name: "Labeling Requirements", Severity: "high", Description: "Check AI labeling per FDA Digital Health Guidance"},
			{CheckID: "fda-013", Name: "510(k) Predicate", Severity: "medium", Description: "Verify predicate comparison per FDA 510(k) AI Guidance"},
			{CheckID: "fda-014", Name: "Post-Market Surveillance", Severity: "high", Description: "Check surveillance plan per FDA MDSR requirements"},
		},
	},
	{
		PackID:       "us-fed-nist-ai",
		Name:         "NIST AI Risk Management Pack",
		Jurisdiction: "United States — Federal",
		Version:      catalogVersion,
		Tier:         "free",
		Frameworks:   []string{"NIST AI RMF 1.0", "NIST Cybersecurity Framework"},
		Checks: []Check{
			{CheckID: "nist-001", Name: "AI Risk Governance", Severity: "critical", Description: "Verify governance structure per NIST AI RMF GOVERN function"},
			{CheckID: "nist-002", Name: "Human-AI Configuration", Severity: "high", Description: "Check human-AI teaming per NIST AI RMF MAP-1.1"},
			{CheckID: "nist-003", Name: "Impact Assessment", Severity: "high", Description: "Verify impact analysis per NIST AI RMF MAP-1.2"},
			{CheckID: "nist-004", Name: "AI System Categorization", Severity: "medium", Description: "Check system categorization per NIST AI RMF MAP-1.3"},
			{CheckID: "nist-005", Name: "Risk Tolerance", Severity: "high", Description: "Verify risk tolerance per NIST AI RMF MAP-1.4"},
			{CheckID: "nist-006", Name: "Data Quality", Severity: "critical", Description: "Check data quality per NIST AI RMF MEASURE-2.1"},
			{CheckID: "nist-007", Name: "Performance Monitoring", Severity: "high", Description: "Verify monitoring per NIST AI RMF MEASURE-2.2"},
			{CheckID: "nist-008", Name: "Risk Controls", Severity: "critical", Description: "Check risk controls per NIST AI RMF MANAGE-1.1"},
			{CheckID: "nist-009", Name: "Incident Response", Severity: "high", Description: "Verify incident response per NIST AI RMF MANAGE-1.2"},
			{CheckID: "nist-010", Name: "Continuous Improvement", Severity: "medium", Description: "Check improvement process per NIST AI RMF MANAGE-1.3"},
		},
	},
	{
		PackID:       "eu-ai-act",
		Name:         "EU AI Act Compliance Pack",
		Jurisdiction: "European Union",
		Version:      catalogVersion,
		Tier:         "pro",
		Frameworks:   []string{"EU AI Act", "GDPR", "MDR"},
		Checks: []Check{
			{CheckID: "ai-act-001", Name: "AI System Classification", Severity: "critical", Description: "Verify risk classification per EU AI Act Article 6"},
			{CheckID: "ai-act-002", Name: "Prohibited Practices", Severity: "critical", Description: "Check prohibited AI per EU AI Act Article 5"},
			{CheckID: "ai-act-003", Name: "High-Risk Requirements", Severity: "critical", Description: "Verify high-risk compliance per EU AI Act Chapter 3"},
			{CheckID: "ai-act-004", Name: "Data Governance", Severity: "critical", Description: "Check data governance per EU AI Act Article 10"},
			{CheckID: "ai-act-005", Name: "Technical Documentation", Severity: "high", Description: "Verify documentation per EU AI Act Article 11"},
			{CheckID: "ai-act-006", Name: "Record Keeping", Severity: "high", Description: "Check record keeping per EU AI Act Article 12"},
			{CheckID: "ai-act-007", Name: "Transparency Requirements", Severity: "high", Description: "Verify transparency per EU AI Act Article 13"},
			{CheckID: "ai-act-008", Name: "Human Oversight", Severity: "critical", Description: "Check human oversight per EU AI Act Article 14"},
			{CheckID: "ai-act-009", Name: "Accuracy Requirements", Severity: "high", Description: "Verify accuracy standards per EU AI Act Article 15"},
			{CheckID: "ai-act-010", Name: "Robustness Testing", Severity: "high", Description: "Check robustness per EU AI Act Article 15"},
			{CheckID: "ai-act-011", Name: "Cybersecurity", Severity: "critical", Description: "Verify cybersecurity per EU AI Act Article 15"},
			{CheckID: "ai-act-012", Name: "Bias Mitigation", Severity: "critical", Description: "Check bias controls per EU AI Act Article 10"},
			{CheckID: "ai-act-013", Name: "Conformity Assessment", Severity: "critical", Description: "Verify conformity per EU AI Act Article 43"},
			{CheckID: "ai-act-014", Name: "CE Marking", Severity: "critical", Description: "Check CE marking per EU AI Act Article 48"},
			{CheckID: "ai-act-015", Name: "Post-Market Monitoring", Severity: "high", Description: "Verify monitoring per EU AI Act Article 72"},
			{CheckID: "ai-act-016", Name: "Incident Reporting", Severity: "critical", Description: "Check incident reporting per EU AI Act Article 73"},
		},
	},
}
