package corpus

// Categories used by the built-in corpus
const (
	CategoryEmail            = "email"
	CategoryPhone            = "phone"
	CategorySSN              = "ssn"
	CategoryCard             = "credit_card"
	CategoryMultiple         = "multiple"
	CategoryObfuscatedEmail  = "obfuscated_email"
	CategoryObfuscatedSSN    = "obfuscated_ssn"
	CategoryObfuscatedPhone  = "obfuscated_phone"
	CategoryControl          = "control"
	CategoryNumericLookalike = "numeric_lookalike"
)

// Builtin returns the default corpus: literal PII, obfuscated PII the regex
// rules are known to miss, and clean controls
func Builtin() []Case {
	return []Case{
		{Text: "My email is john.doe@example.com, can you help me write a professional bio?", Expected: true, Category: CategoryEmail},
		{Text: "Contact support at help@company.org for assistance.", Expected: true, Category: CategoryEmail},
		{Text: "Call me at 555-123-4567 to discuss the project.", Expected: true, Category: CategoryPhone},
		{Text: "My office number is (800) 555-0199.", Expected: true, Category: CategoryPhone},
		{Text: "My SSN is 123-45-6789, please keep it safe.", Expected: true, Category: CategorySSN},
		{Text: "Charge it to card 4111 1111 1111 1111.", Expected: true, Category: CategoryCard},
		{Text: "Send the report to alice@corp.com or call 555-987-6543.", Expected: true, Category: CategoryMultiple},
		{Text: "Reach out to bob@test.io at +1-555-000-1111 for details.", Expected: true, Category: CategoryMultiple},

		{Text: "john dot doe at example dot com", Expected: true, Category: CategoryObfuscatedEmail},
		{Text: "You can write to jane dot smith at mail dot org anytime.", Expected: true, Category: CategoryObfuscatedEmail},
		{Text: "one two three, four five, six seven eight nine", Expected: true, Category: CategoryObfuscatedSSN},
		{Text: "My social is nine eight seven, six five, four three two one.", Expected: true, Category: CategoryObfuscatedSSN},
		{Text: "call five five five, one two three, four five six seven", Expected: true, Category: CategoryObfuscatedPhone},

		{Text: "What is the capital of France?", Expected: false, Category: CategoryControl},
		{Text: "Explain quantum computing in simple terms.", Expected: false, Category: CategoryControl},
		{Text: "What are best practices for code review?", Expected: false, Category: CategoryControl},
		{Text: "I have three cats and two dogs at home.", Expected: false, Category: CategoryControl},
		{Text: "The IP address 192.168.1.1 is not a phone number.", Expected: false, Category: CategoryNumericLookalike},
		{Text: "Version 2.14.3 shipped on 2024-06-01 with 12 fixes.", Expected: false, Category: CategoryNumericLookalike},
	}
}
