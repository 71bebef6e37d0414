package assistant

const chatPlaceholder = `**No response was received from the assistant.**

Here is how a typical answer is organised:

1. **Applicable provisions** - the statutes and constitutional articles that govern the facts.
2. **Relevant cases** - decisions that interpret those provisions.
3. **Conclusion** - the likely legal consequences for the parties.

Please resend your question to get an answer for your facts.`

const researchPlaceholder = `**No research results were received.**

A research answer summarises the current position of the law, the most recent decisions and the authorities relied on, followed by a list of sources.

Please resend your question to run the research again.`

const draftPlaceholder = `**Service Contract between the Employer and the Employee, made on the date of signature by both parties.**

1. Position and Duties
- The Employer agrees to employ the Employee in the position described in the offer letter.
- The Employee agrees to perform the duties assigned by the Employer during the course of employment.

2. Term of Employment
- Employment begins on the agreed start date and continues until terminated by either party in accordance with this contract.

3. Termination
- Either party may terminate this contract by giving written notice as required by applicable law.

4. Governing Law
- This contract is governed by the laws of the jurisdiction in which the Employer is registered.`

// placeholderFor returns the fixed document shown when the service returns no response.
func placeholderFor(mode Mode) string {
	switch mode {
	case ModeResearch:
		return researchPlaceholder
	case ModeDraft:
		return draftPlaceholder
	default:
		return chatPlaceholder
	}
}
