package speech

// VeterinaryPhrases is the speech-context hint list sent with every request.
var VeterinaryPhrases = []string{
	// SOAP sections
	"SOAP", "subjective", "objective", "assessment", "plan",
	"chief complaint", "history", "differential diagnosis",

	// vitals and exam
	"temperature", "heart rate", "respiratory rate", "weight",
	"body condition score", "capillary refill time", "mucous membranes",
	"examination", "palpation", "auscultation", "heart murmur", "dehydration",

	// procedures and treatment
	"vaccination", "spay", "neuter", "anesthesia", "dental prophylaxis",
	"prescription", "medication", "dosage", "treatment", "subcutaneous fluids",

	// diagnostics
	"CBC", "chemistry panel", "urinalysis", "radiograph", "ultrasound",
	"fecal float", "cytology", "otitis externa",

	// species
	"canine", "feline", "equine", "bovine", "dog", "cat", "puppy", "kitten",

	// anatomy
	"abdomen", "thorax", "lymph nodes", "ear canal", "tympanic membrane",
	"conjunctiva", "stifle", "hip dysplasia",
}
