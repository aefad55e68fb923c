package server

import (
	"net"
	"net/http"
	"strings"
)

// ------------------------------------------------------------
// 단말 IP 추출
//
// relay 앞에 ALB / CloudFront 같은 proxy 가 있으면
// RemoteAddr 는 proxy 주소다. 아래 순서로 후보를 모으고
// 첫 번째 public IP 를 event.context.ip 로 쓴다.
//
//  1. X-Forwarded-For 의 각 항목 (왼쪽부터)
//  2. CloudFront-Viewer-Address (ip:port, IPv6 포함)
//  3. RemoteAddr
//
// 후보가 모두 private / loopback 이면 "" 이고, 이 경우 context.ip 는 붙지 않는다.
// ------------------------------------------------------------
func clientIP(r *http.Request) string {
	for _, c := range ipCandidates(r) {
		if ip := parseIP(c); isPublicIP(ip) {
			return ip.String()
		}
	}
	return ""
}

func ipCandidates(r *http.Request) []string {
	var out []string

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		out = append(out, strings.Split(xff, ",")...)
	}

	// "203.0.113.55:44321" / "2404:6800:4004::200e:44321"
	// 마지막 ":" 뒤가 포트. IPv6 에 대괄호가 없으므로 SplitHostPort 는 못 쓴다.
	if cf := r.Header.Get("CloudFront-Viewer-Address"); cf != "" {
		if i := strings.LastIndex(cf, ":"); i != -1 {
			cf = cf[:i]
		}
		out = append(out, cf)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		out = append(out, host)
	}
	return out
}

func parseIP(s string) net.IP {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return net.ParseIP(s)
}

// isPublicIP: private(10/8, 172.16/12, 192.168/16, fc00::/7), loopback, link-local 제외.
func isPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return !ip.IsPrivate() &&
		!ip.IsLoopback() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsLinkLocalMulticast() &&
		!ip.IsUnspecified()
}
