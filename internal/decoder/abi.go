package decoder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var signatureRegex = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// ConstructEventABI builds a go-ethereum event ABI from a human-readable
// signature like "Swap(address sender,uint256[] ids,bytes32[] amountsIn)".
func ConstructEventABI(signature string) (*abi.Event, error) {
	matches := signatureRegex.FindStringSubmatch(strings.TrimSpace(signature))
	if len(matches) != 3 {
		return nil, fmt.Errorf("invalid event signature format: %q", signature)
	}

	eventName := matches[1]
	params := matches[2]

	inputs, err := parseParamsToAbiArguments(params)
	if err != nil {
		return nil, fmt.Errorf("failed to parse params to abi arguments '%s': %v", params, err)
	}

	event := abi.NewEvent(eventName, eventName, false, inputs)
	return &event, nil
}

func parseParamsToAbiArguments(params string) (abi.Arguments, error) {
	paramList := splitParams(strings.TrimSpace(params))
	var inputs abi.Arguments
	for idx, param := range paramList {
		arg, err := parseParamToAbiArgument(param, fmt.Sprintf("%d", idx))
		if err != nil {
			return nil, fmt.Errorf("failed to parse param to arg '%s': %v", param, err)
		}
		inputs = append(inputs, *arg)
	}
	return inputs, nil
}

func splitParams(params string) []string {
	var result []string
	depth := 0
	current := ""
	for _, r := range params {
		switch r {
		case ',':
			if depth == 0 {
				result = append(result, strings.TrimSpace(current))
				current = ""
				continue
			}
		case '(':
			depth++
		case ')':
			depth--
		}
		current += string(r)
	}
	if strings.TrimSpace(current) != "" {
		result = append(result, strings.TrimSpace(current))
	}
	return result
}

func parseParamToAbiArgument(param string, fallbackName string) (*abi.Argument, error) {
	argName, paramType, indexed, err := getArgNameAndType(param, fallbackName)
	if err != nil {
		return nil, fmt.Errorf("failed to get arg name and type '%s': %v", param, err)
	}
	argType, err := abi.NewType(paramType, paramType, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse type '%s': %v", paramType, err)
	}
	return &abi.Argument{
		Name:    argName,
		Type:    argType,
		Indexed: indexed,
	}, nil
}

func getArgNameAndType(param string, fallbackName string) (name string, paramType string, indexed bool, err error) {
	tokens := strings.Fields(param)
	filtered := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token == "indexed" {
			indexed = true
			continue
		}
		filtered = append(filtered, token)
	}
	if len(filtered) == 0 {
		return "", "", false, fmt.Errorf("empty parameter")
	}
	if len(filtered) == 1 {
		return fallbackName, strings.TrimSpace(filtered[0]), indexed, nil
	}
	return strings.TrimSpace(filtered[len(filtered)-1]), strings.Join(filtered[:len(filtered)-1], " "), indexed, nil
}
