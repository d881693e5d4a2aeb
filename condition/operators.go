package condition

import (
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// regexCache avoids recompiling a rule's pattern on every request; rules
// are evaluated far more often than they change.
var regexCache sync.Map // map[string]*regexp.Regexp

func compileRegex(pattern string) (*regexp.Regexp, error) {
	if v, ok := regexCache.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// applyOperator evaluates operator against fieldValue and operand. It never
// panics or returns an error for a malformed comparison — per spec.md
// §4.2, unknown operators and unparseable operands evaluate to false with
// a warning, never throw.
func applyOperator(fieldName, operator, fieldValue, operand string) (result bool, warn string) {
	switch operator {
	case "eq":
		if fieldName == "clientIP" && looksLikeCIDR(operand) {
			ok, err := cidrContains(operand, fieldValue)
			if err != nil {
				return false, "invalid CIDR operand: " + err.Error()
			}
			return ok, ""
		}
		return fieldValue == operand, ""
	case "ne":
		if fieldName == "clientIP" && looksLikeCIDR(operand) {
			ok, err := cidrContains(operand, fieldValue)
			if err != nil {
				return false, "invalid CIDR operand: " + err.Error()
			}
			return !ok, ""
		}
		return fieldValue != operand, ""
	case "gt", "ge", "lt", "le":
		return numericCompare(operator, fieldValue, operand)
	case "contains":
		return strings.Contains(fieldValue, operand), ""
	case "not_contains":
		return !strings.Contains(fieldValue, operand), ""
	case "starts_with":
		return strings.HasPrefix(fieldValue, operand), ""
	case "ends_with":
		return strings.HasSuffix(fieldValue, operand), ""
	case "matches":
		re, err := compileRegex(operand)
		if err != nil {
			return false, "invalid regex: " + err.Error()
		}
		return re.MatchString(fieldValue), ""
	default:
		return false, "unknown operator: " + operator
	}
}

func looksLikeCIDR(operand string) bool {
	return strings.Contains(operand, "/")
}

// cidrContains reports whether ip falls within cidr. IPv4 only, per
// spec.md §9's open-question resolution — an IPv6 operand is returned as
// an error, so the leaf fails closed with a warning; an IPv6 or
// unparseable address simply does not fall within the network.
func cidrContains(cidr, ip string) (bool, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false, err
	}
	if network.IP.To4() == nil {
		return false, errors.New("IPv6 CIDR operands are not supported")
	}
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return false, nil
	}
	return network.Contains(parsed), nil
}

func numericCompare(operator, fieldValue, operand string) (bool, string) {
	a, errA := strconv.ParseFloat(fieldValue, 64)
	b, errB := strconv.ParseFloat(operand, 64)
	if errA != nil || errB != nil {
		return false, "non-numeric operand for " + operator
	}
	switch operator {
	case "gt":
		return a > b, ""
	case "ge":
		return a >= b, ""
	case "lt":
		return a < b, ""
	case "le":
		return a <= b, ""
	}
	return false, "unknown operator: " + operator
}
