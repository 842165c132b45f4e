package challenge

import "github.com/pvtclawn/swarm-verifier/internal/swarm"

// promptBank 按挑战类型划分固定题库。
// parallel 类题目答案确定且简短，便于跨智能体对比时延；
// stylistic 类题目开放，用于观察表达风格的趋同程度。
var promptBank = map[swarm.ChallengeType][]string{
	swarm.TypeParallel: {
		"What is 17 multiplied by 23? Reply with the number only.",
		"Spell the word 'synchronous' backwards. Reply with the letters only.",
		"What is the 10th prime number? Reply with the number only.",
		"How many seconds are in 4.5 hours? Reply with the number only.",
		"What is the hexadecimal representation of 255? Reply with the value only.",
		"What is 2 to the power of 12? Reply with the number only.",
		"How many letters are in the word 'verification'? Reply with the number only.",
	},
	swarm.TypeStylistic: {
		"Describe the color blue to someone who has never seen color, in exactly two sentences.",
		"Explain what makes a good API in exactly three sentences.",
		"Write a one-sentence definition of trust between machines.",
		"Summarize the idea of consensus in two sentences without using the word 'agree'.",
		"In two sentences, what distinguishes a swarm from a crowd?",
	},
}

// Prompts 返回指定类型的题库副本，未知类型回落到 parallel。
func Prompts(typ swarm.ChallengeType) []string {
	bank, ok := promptBank[typ]
	if !ok {
		bank = promptBank[swarm.TypeParallel]
	}
	out := make([]string, len(bank))
	copy(out, bank)
	return out
}
